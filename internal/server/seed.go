package server

import (
	"context"
	"errors"
	"log/slog"

	"github.com/langcham/mapquiz/internal/identity"
)

const (
	DemoEmail    = "demo@mapquiz.local"
	DemoPassword = "Demo#2024"
)

// SeedDemo creates the demo account. Idempotent: an existing account is
// left as is.
func SeedDemo(ctx context.Context, logger *slog.Logger, ids *identity.Service) error {
	_, err := ids.SignUp(ctx, identity.SignUpInput{
		Email:     DemoEmail,
		Password:  DemoPassword,
		FirstName: "Demo",
		LastName:  "Player",
	})
	if errors.Is(err, identity.ErrEmailTaken) {
		return nil
	}
	if err != nil {
		return err
	}
	logger.Info("demo account created", "email", DemoEmail)
	return nil
}
