package crypto

// MaxKeySetSize is the largest JWK set document accepted from an issuer.
var MaxKeySetSize int64 = 1024 * 1024 // 1MB
