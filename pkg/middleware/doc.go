// Package middleware provides the HTTP middleware of the accessd API.
//
// # Middleware Components
//
// RequestID: assigns a request id and a request scoped logger
//
//	router.Use(middleware.RequestID(logger), middleware.AccessLog)
//
// Authenticator: validates bearer tokens and stores the *auth.Principal
//
//	authn := middleware.NewAuthenticator(signer, middleware.AuthenticatorOptions{
//		RevocationEnabled: cfg.Auth.RevocationEnabled,
//		Versions:          versions,
//	})
//	api.Use(authn.Handler)
//
// Authorizer: route gates
//
//	gates := middleware.NewAuthorizer(resolver, auditLogger, logger)
//	admin.Use(gates.RequireRole("ADMIN"))                 // token authority
//	tasks.Use(gates.RequirePermission("TASK", "UPDATE"))  // live check
//
// Authority gates trust the login-time authorities embedded in the token and
// can lag behind assignment changes. Permission gates query the resolver on
// every request.
//
// RateLimit: fixed window throttle keyed by client IP, used on /auth/login.
// Forwarding headers are honoured only from trusted proxies.
//
//	proxies, _ := middleware.ParseTrustedProxies([]string{"10.0.0.0/8"})
//	limiter := middleware.NewRedisLimiter(redisClient, middleware.DefaultLoginRateLimitConfig(), "")
//	login.Use(middleware.RateLimit(limiter, "login", proxies, logger))
package middleware
