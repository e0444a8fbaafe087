// Package devserver is a development backend that speaks the contract goGateway expects:
// JSON envelopes, bearer access tokens, refresh tokens, CSRF echo checks and
// permission-guarded CRUD, upload and download routes.
//
// It keeps all state in memory and is meant for tests, demos and load generation, not
// production.
//
// Routes (relative to the mount point):
//
//	POST   /auth/login        {"username","password"} → {data: {user, token, csrf_token}}
//	POST   /auth/refresh      {"refresh_token"}       → {data: token}
//	GET    /health
//	GET    /records           records:read
//	POST   /records           records:write
//	GET    /records/{id}      records:read
//	PUT    /records/{id}      records:write
//	PATCH  /records/{id}      records:write
//	DELETE /records/{id}      records:write
//	POST   /files             files:write (multipart "file")
//	GET    /files/{name}      files:read
package devserver
