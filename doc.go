/*
Package secheaders emits HTTP security response headers for one request: a set of static hardening headers,
a Content-Security-Policy built with the [csp] package, and legacy headers for older user agents.

An [Emitter] is created for each request from a [Config].
It loads a policy definition, injects nonces minted by a [nonce.Manager], runs an optional setter for programmatic changes,
and writes its headers at most once.
[NewMiddleware] wires this into an [http.Handler] chain and makes the emitter available to templates through the request context.
*/
package secheaders
