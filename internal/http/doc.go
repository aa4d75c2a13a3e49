// Package http provides HTTP handlers and middleware for the study scheduler API.
//
// The router exposes the following endpoints:
//   - POST /users: registers an account. POST /sessions: issues a session token,
//     surfaced in the response body, the `X-Session-Token` header, and a
//     `session_token` cookie. DELETE /sessions/current revokes the current token.
//     These three routes are the only ones reachable without a session.
//   - GET /users/me, DELETE /users/me: profile and account removal for the
//     authenticated principal.
//   - GET /studies, POST /studies, GET/PUT/DELETE /studies/{id}: study catalog
//     exchanging the `studyDTO` payload defined in study_handler.go. Membership
//     actions live under the study: POST pin, join, leave, transfer, invite-code,
//     invitations, and DELETE /studies/{id}/members/{userID}.
//   - GET/POST /studies/{id}/schedules plus GET today, GET/PUT/DELETE by id, and
//     PUT .../problems/{number}: schedule management exchanging the `scheduleDTO`
//     payload defined in schedule_handler.go. Listing accepts year/month/day
//     query parameters selecting a month grid or week view.
//   - GET/POST /studies/{id}/chat and GET /studies/{id}/chat/latest: keyset
//     paginated chat history, newest first, with `before` and `limit` parameters.
//   - POST /submissions: records a judge outcome for the authenticated user.
//
// Request/response DTOs live alongside their respective handlers so tests and
// documentation share the same ground truth.
package http
