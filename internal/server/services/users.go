package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrijs2005/teamcodes/internal/common"
	"github.com/dmitrijs2005/teamcodes/internal/server/auth"
	sc "github.com/dmitrijs2005/teamcodes/internal/server/config"
	"github.com/dmitrijs2005/teamcodes/internal/server/models"
	"github.com/dmitrijs2005/teamcodes/internal/server/repositories/repomanager"
)

// UserService covers the minimum auth surface needed to gate restricted
// share links: a login that issues a session token carrying the member's
// email.
type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	config      *sc.Config
}

func NewUserService(db *sql.DB, repomanager repomanager.RepositoryManager, config *sc.Config) *UserService {
	return &UserService{db: db, repomanager: repomanager, config: config}
}

func (s *UserService) Register(ctx context.Context, email, password string) (*models.Member, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	member := &models.Member{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(email),
		PasswordHash: string(hash),
	}
	return s.repomanager.Members(s.db).Create(ctx, member)
}

// Login returns a signed session token on success, ErrorUnauthorized for
// both unknown emails and wrong passwords.
func (s *UserService) Login(ctx context.Context, email, password string) (string, error) {
	member, err := s.repomanager.Members(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", common.ErrorUnauthorized
		}
		return "", err
	}

	if bcrypt.CompareHashAndPassword([]byte(member.PasswordHash), []byte(password)) != nil {
		return "", common.ErrorUnauthorized
	}

	return auth.GenerateToken(member.Email, []byte(s.config.SessionSecretKey), s.config.SessionValidityDuration)
}

// EmailFromToken extracts the viewer email from a session token. An empty
// token is an anonymous viewer, not an error.
func (s *UserService) EmailFromToken(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	return auth.GetEmailFromToken(token, []byte(s.config.SessionSecretKey))
}
