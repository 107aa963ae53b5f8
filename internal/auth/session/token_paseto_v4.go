package session

import (
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

// Kind discriminates access tokens from refresh tokens. It is embedded as a
// claim so one kind can never be accepted where the other is required.
type Kind string

const (
	// KindAccess marks short-lived access tokens.
	KindAccess Kind = "access"
	// KindRefresh marks longer-lived refresh tokens.
	KindRefresh Kind = "refresh"
)

// Claims is the verified claim set of an Aria token.
type Claims struct {
	SubjectID string
	Kind      Kind
	IssuedAt  time.Time
	ExpiresAt time.Time
	Issuer    string
}

// Pair bundles a freshly issued access/refresh token pair.
type Pair struct {
	AccessToken  string
	AccessExp    time.Time
	RefreshToken string
	RefreshExp   time.Time
}

// Codec signs and verifies Aria tokens. Implementations are stateless;
// validity is solely cryptographic plus expiry.
type Codec interface {
	IssuePair(subjectID string, now time.Time) (Pair, error)
	Verify(token string, expected Kind, now time.Time) (Claims, error)
	PublicKeyHex() string
}

type pasetoV4PublicCodec struct {
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	clockSkew  time.Duration

	secret paseto.V4AsymmetricSecretKey
	public paseto.V4AsymmetricPublicKey
}

// NewPasetoV4PublicCodec builds a Codec based on PASETO v4.public.
//
// It uses an Ed25519 asymmetric keypair and enforces issuer, kind, and
// expiration rules. Clock skew is applied during verification to tolerate
// minor clock differences.
func NewPasetoV4PublicCodec(cfg Config) (Codec, error) {
	secret, err := paseto.NewV4AsymmetricSecretKeyFromHex(cfg.PasetoV4SecretKeyHex)
	if err != nil {
		return nil, ErrConfig
	}

	return &pasetoV4PublicCodec{
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
		clockSkew:  cfg.ClockSkew,
		secret:     secret,
		public:     secret.Public(),
	}, nil
}

func (c *pasetoV4PublicCodec) PublicKeyHex() string {
	return c.public.ExportHex()
}

func (c *pasetoV4PublicCodec) IssuePair(subjectID string, now time.Time) (Pair, error) {
	access, accessExp := c.sign(subjectID, KindAccess, now, c.accessTTL)
	refresh, refreshExp := c.sign(subjectID, KindRefresh, now, c.refreshTTL)

	return Pair{
		AccessToken:  access,
		AccessExp:    accessExp,
		RefreshToken: refresh,
		RefreshExp:   refreshExp,
	}, nil
}

func (c *pasetoV4PublicCodec) sign(subjectID string, kind Kind, now time.Time, ttl time.Duration) (string, time.Time) {
	exp := now.Add(ttl)

	tok := paseto.NewToken()
	tok.SetIssuer(c.issuer)
	tok.SetSubject(subjectID)
	tok.SetIssuedAt(now)
	tok.SetNotBefore(now) // Tokens valid immediately.
	tok.SetExpiration(exp)
	_ = tok.Set("kind", string(kind))

	return tok.V4Sign(c.secret, nil), exp
}

func (c *pasetoV4PublicCodec) Verify(token string, expected Kind, now time.Time) (Claims, error) {
	// Expiry is checked manually below so callers can distinguish
	// ErrTokenExpired from signature failures.
	p := paseto.NewParserWithoutExpiryCheck()
	p.AddRule(paseto.IssuedBy(c.issuer))

	parsed, err := p.ParseV4Public(c.public, token, nil)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}

	sub, err := parsed.GetSubject()
	if err != nil || sub == "" {
		return Claims{}, ErrInvalidToken
	}
	kindClaim, err := parsed.GetString("kind")
	if err != nil || kindClaim == "" {
		return Claims{}, ErrInvalidToken
	}

	iss, _ := parsed.GetIssuer()
	exp, err := parsed.GetExpiration()
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	iat, _ := parsed.GetIssuedAt()

	// Clock-skew tolerance: expiry is checked slightly in the past.
	if !exp.After(now.Add(-c.clockSkew)) {
		return Claims{}, ErrTokenExpired
	}

	if Kind(kindClaim) != expected {
		return Claims{}, ErrKindMismatch
	}

	return Claims{
		SubjectID: sub,
		Kind:      Kind(kindClaim),
		IssuedAt:  iat,
		ExpiresAt: exp,
		Issuer:    iss,
	}, nil
}
