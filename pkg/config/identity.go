package config

// IdentityConfig describes cryptographic identity settings.
// Precedence: private_key, then private_key_file, then name; a random key otherwise.
type IdentityConfig struct {
    Alg            string `mapstructure:"alg"`              // e.g., ed25519
    Name           string `mapstructure:"name"`             // deterministic identity seed, e.g. mavlink-rns-fc
    PrivateKey     string `mapstructure:"private_key"`      // base64url(no padding) of raw private key bytes
    PrivateKeyFile string `mapstructure:"private_key_file"` // path to file containing base64 or raw bytes
}
