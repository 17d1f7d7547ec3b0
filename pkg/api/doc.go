// Package api provides the HTTP REST API of accessd.
//
// # Overview
//
// The API is built on gorilla/mux and organized into handler groups:
//
//   - Authentication: login and the caller's live identity, permissions and screens
//   - Permission queries: resource, field and admin checks for a user
//   - Profile administration: profile CRUD and per-profile grants
//   - Catalog administration: resource and operation codes
//   - Assignments: linking users to profiles
//
// # Access Rules
//
// POST /auth/login, /healthz and /readyz are public. Everything else needs a
// bearer token. Permission queries about another user require the caller to
// be an admin at request time; administration routes require the ROLE_ADMIN
// authority embedded in the token.
//
// # Error Responses
//
// Errors use a uniform body:
//
//	{"error": "profile ADMIN (id 1) is referenced by 3 assignment(s)", "code": "conflict"}
//
// Not found maps to 404, duplicate codes and profiles still in use to 409,
// invalid input to 400, missing or invalid tokens to 401 and denied gates to
// 403. Store failures are logged and reported as a bare 500.
package api
