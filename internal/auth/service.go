package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"golang.org/x/crypto/bcrypt"
)

// Roles understood by the policy.
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
	// RoleViewer authenticates but holds no grants. Reads are public.
	RoleViewer   = "viewer"
)

// policies are the (role, object, action) grants.
var policies = [][]string{
	{RoleAdmin, "*", "*"},
	{RoleOperator, "collect", "run"},
}

// ErrInvalidToken is returned when a bearer token matches no credential.
var ErrInvalidToken = errors.New("invalid token")

// Credential is a named bearer token, stored as a bcrypt hash.
type Credential struct {
	Name string
	Role string
	Hash string
}

type Service struct {
	creds    []Credential
	enforcer *casbin.Enforcer
}

func NewService(creds ...Credential) (*Service, error) {
	// Initialize Casbin
	m, err := model.NewModelFromString(`
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && (r.obj == p.obj || p.obj == "*") && (r.act == p.act || p.act == "*")
`)
	if err != nil {
		return nil, err
	}

	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, err
	}

	for _, p := range policies {
		if _, err := e.AddPolicy(p[0], p[1], p[2]); err != nil {
			return nil, fmt.Errorf("auth: policy %v: %w", p, err)
		}
	}

	s := &Service{enforcer: e}
	for _, c := range creds {
		if c.Hash == "" {
			continue
		}
		if c.Role == "" {
			c.Role = RoleViewer
		}
		if _, err := bcrypt.Cost([]byte(c.Hash)); err != nil {
			return nil, fmt.Errorf("auth: credential %q: %w", c.Name, err)
		}
		if _, err := e.AddGroupingPolicy(c.Name, c.Role); err != nil {
			return nil, err
		}
		s.creds = append(s.creds, c)
	}
	return s, nil
}

// Enabled reports whether any credential is configured.
func (s *Service) Enabled() bool { return len(s.creds) > 0 }

// HashToken returns the bcrypt hash to configure for a raw token.
func HashToken(raw string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// ValidateToken returns the credential whose hash matches rawToken.
func (s *Service) ValidateToken(ctx context.Context, rawToken string) (*Credential, error) {
	if rawToken == "" {
		return nil, ErrInvalidToken
	}
	for i := range s.creds {
		if bcrypt.CompareHashAndPassword([]byte(s.creds[i].Hash), []byte(rawToken)) == nil {
			c := s.creds[i]
			return &c, nil
		}
	}
	return nil, ErrInvalidToken
}

func (s *Service) Enforce(sub, obj, act string) (bool, error) {
	return s.enforcer.Enforce(sub, obj, act)
}
