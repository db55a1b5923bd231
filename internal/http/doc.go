// Package http exposes the meeting and account services over a gin router.
//
// Public endpoints:
//   - POST /auth/login: {"email","password"} -> {"access_token","expiresAt","user"}.
//   - POST /users: registers an account and returns it without credentials.
//   - GET /healthz and, when configured, GET /metrics.
//
// Every other endpoint requires a bearer token, or a NextAuth session cookie when the
// authenticator has sessions enabled:
//   - POST /auth/profile, GET|PATCH|DELETE /users/profile.
//   - POST /meetings, GET /meetings, GET /meetings/history?limit=n (default 10).
//   - GET|PATCH|DELETE /meetings/:id, POST /meetings/:id/{join,start,end}.
//   - GET /meetings/by-call/:callId returns the meeting, or null for an unknown call id.
//   - POST /meetings/by-call/:callId gets or creates the meeting bound to the call id.
//   - POST /meetings/by-call/:callId/{join,start,end} gets or creates, then applies the operation.
//
// Meetings are serialized by meetingDTO in dto.go. Service errors map to 400 (validation),
// 401, 403, 404 and 409; anything else is a 500 with a generic message.
package http
