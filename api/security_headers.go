package api

import "net/http"

// contentSecurityPolicy allows the hosted checkout script and its frames in
// addition to same-origin resources.
const contentSecurityPolicy = "default-src 'self'; " +
	"script-src 'self' https://checkout.razorpay.com; " +
	"style-src 'self' 'unsafe-inline'; " +
	"img-src 'self' data: https://*.razorpay.com; " +
	"frame-src https://api.razorpay.com https://checkout.razorpay.com; " +
	"connect-src 'self' https://api.razorpay.com https://lumberjack.razorpay.com"

// SecurityHeaders sets standard security response headers on every
// response. Place it early in the middleware chain.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=(), payment=(self \"https://api.razorpay.com\")")
		w.Header().Set("Content-Security-Policy", contentSecurityPolicy)

		if requestIsSecure(r) {
			w.Header().Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}
