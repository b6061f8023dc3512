package app

import (
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/gatekeep/pkg/cryptox"
	"github.com/aussiebroadwan/gatekeep/pkg/jwtx"
)

// InitCodec builds the token codec from the configured secret and lifetimes.
// Every authority replica and every resource service must share the secret.
func InitCodec(cfg Config) (*jwtx.Codec, error) {
	return jwtx.NewCodec(jwtx.CodecConfig{
		Secret:              []byte(cfg.SignerKey),
		Issuer:              cfg.Issuer,
		RefreshableDuration: cfg.RefreshableDuration,
	})
}

// InitPasswordHasher builds the hasher for new passwords. The pepper file is
// only read (or created) when argon2id is selected.
func InitPasswordHasher(cfg Config, logger *slog.Logger) (*cryptox.PasswordHasher, error) {
	alg, err := cryptox.ParseAlgorithm(cfg.PasswordAlgorithm)
	if err != nil {
		return nil, err
	}

	hcfg := cryptox.PasswordHasherConfig{
		Algorithm:  alg,
		BcryptCost: cfg.BcryptCost,
	}

	if alg == cryptox.AlgorithmArgon2id {
		pepper, err := cryptox.LoadPepper(cfg.PepperFile)
		if err != nil {
			return nil, fmt.Errorf("load pepper: %w", err)
		}
		hcfg.Pepper = pepper
		logger.Info("password pepper loaded", "path", cfg.PepperFile)
	}

	return cryptox.NewPasswordHasher(hcfg)
}
