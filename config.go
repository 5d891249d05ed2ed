package auth

import "time"

const (
	DefaultIssuer          = "gridtokenx-auth"
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
	DefaultLedgerCapacity  = 10_000
	DefaultLedgerRetention = 24 * time.Hour
)

// Options is the plain Config implementation.
type Options struct {
	SigningKey             string        `toml:"signing_key" json:"signing_key"`
	Issuer                 string        `toml:"issuer" json:"issuer"`
	AccessTokenTTL         time.Duration `toml:"access_token_ttl" json:"access_token_ttl"`
	RefreshTokenTTL        time.Duration `toml:"refresh_token_ttl" json:"refresh_token_ttl"`
	LedgerCapacity         int           `toml:"ledger_capacity" json:"ledger_capacity"`
	LedgerRetention        time.Duration `toml:"ledger_retention" json:"ledger_retention"`
	MaxFailedLoginAttempts int           `toml:"max_failed_login_attempts" json:"max_failed_login_attempts"`
}

var _ Config = Options{}

// DefaultOptions returns the defaults with the given signing key.
func DefaultOptions(signingKey string) Options {
	return Options{
		SigningKey:             signingKey,
		Issuer:                 DefaultIssuer,
		AccessTokenTTL:         DefaultAccessTokenTTL,
		RefreshTokenTTL:        DefaultRefreshTokenTTL,
		LedgerCapacity:         DefaultLedgerCapacity,
		LedgerRetention:        DefaultLedgerRetention,
		MaxFailedLoginAttempts: MaxFailedLoginAttempts,
	}
}

func (o Options) GetSigningKey() string { return o.SigningKey }

func (o Options) GetIssuer() string {
	if o.Issuer == "" {
		return DefaultIssuer
	}
	return o.Issuer
}

func (o Options) GetAccessTokenTTL() time.Duration {
	if o.AccessTokenTTL <= 0 {
		return DefaultAccessTokenTTL
	}
	return o.AccessTokenTTL
}

func (o Options) GetRefreshTokenTTL() time.Duration {
	if o.RefreshTokenTTL <= 0 {
		return DefaultRefreshTokenTTL
	}
	return o.RefreshTokenTTL
}

func (o Options) GetLedgerCapacity() int {
	if o.LedgerCapacity <= 0 {
		return DefaultLedgerCapacity
	}
	return o.LedgerCapacity
}

func (o Options) GetLedgerRetention() time.Duration {
	if o.LedgerRetention <= 0 {
		return DefaultLedgerRetention
	}
	return o.LedgerRetention
}

func (o Options) GetMaxFailedLoginAttempts() int {
	if o.MaxFailedLoginAttempts <= 0 {
		return MaxFailedLoginAttempts
	}
	return o.MaxFailedLoginAttempts
}

// NewTokenServiceFromConfig builds the token codec from cfg.
func NewTokenServiceFromConfig(cfg Config, opts ...TokenServiceOption) *TokenService {
	base := []TokenServiceOption{
		WithAccessTokenTTL(cfg.GetAccessTokenTTL()),
		WithRefreshTokenTTL(cfg.GetRefreshTokenTTL()),
	}
	return NewTokenService([]byte(cfg.GetSigningKey()), cfg.GetIssuer(), append(base, opts...)...)
}

// NewRevocationLedgerFromConfig builds the ledger from cfg.
func NewRevocationLedgerFromConfig(cfg Config, opts ...LedgerOption) *RevocationLedger {
	base := []LedgerOption{
		WithLedgerCapacity(cfg.GetLedgerCapacity()),
		WithLedgerRetention(cfg.GetLedgerRetention()),
	}
	return NewRevocationLedger(append(base, opts...)...)
}
