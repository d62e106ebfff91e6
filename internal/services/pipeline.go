package services

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/contentops/statevault/internal/config"
	"github.com/contentops/statevault/internal/models"
)

// Pipeline applies the optional post-processing stages to a completed
// backup's components in order: compress, encrypt, verify, sync. Each stage
// that rewrites an artifact updates the component's location, size and
// checksum in place, so the recorded checksum always matches the file on
// disk and the verify stage checks the final artifact.
type Pipeline struct {
	cfg    *config.Config
	runner CommandRunner
	target SyncTarget
	log    zerolog.Logger
}

// componentOrder is the fixed processing order across pipeline stages.
var componentOrder = []string{
	models.ComponentDatabase,
	models.ComponentFiles,
	models.ComponentMetadata,
}

func NewPipeline(cfg *config.Config, runner CommandRunner, target SyncTarget, log zerolog.Logger) *Pipeline {
	return &Pipeline{cfg: cfg, runner: runner, target: target, log: log}
}

func (p *Pipeline) Run(ctx context.Context, b *models.Backup) error {
	if p.cfg.Compression {
		if err := p.compress(ctx, b); err != nil {
			return err
		}
	}
	if p.cfg.Encryption {
		if err := p.encrypt(b); err != nil {
			return err
		}
	}
	if p.cfg.Verify {
		if err := p.verify(b); err != nil {
			return err
		}
	}
	if p.target != nil {
		if err := p.syncRemote(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

// compress runs the external compressor over the database dump. The files
// artifact is already a compressed archive produced by its strategy.
func (p *Pipeline) compress(ctx context.Context, b *models.Backup) error {
	comp := b.Components[models.ComponentDatabase]
	if comp == nil || comp.Location == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.ProcessTimeout)
	defer cancel()

	if err := p.runner.Run(ctx, Command{
		Name: p.cfg.Commands.Compress,
		Args: []string{"-f", comp.Location},
	}); err != nil {
		return err
	}

	comp.Location += ".gz"
	if err := refreshComponent(comp, p.cfg.ChecksumAlgorithm); err != nil {
		return err
	}
	b.Compressed = true
	p.log.Debug().Str("backup_id", b.ID).Int64("size", comp.Size).Msg("database dump compressed")
	return nil
}

// encrypt replaces every component artifact with its encrypted form and
// removes the plaintext.
func (p *Pipeline) encrypt(b *models.Backup) error {
	if p.cfg.EncryptionKey == "" {
		return configErrorf("encryption enabled but no encryption key configured")
	}

	for _, name := range componentOrder {
		comp := b.Components[name]
		if comp == nil || comp.Location == "" {
			continue
		}
		encPath := comp.Location + ".enc"
		if err := EncryptFile(comp.Location, encPath, p.cfg.EncryptionKey); err != nil {
			os.Remove(encPath)
			return err
		}
		if err := os.Remove(comp.Location); err != nil {
			p.log.Warn().Err(err).Str("component", name).Msg("failed to remove plaintext artifact")
		}
		comp.Location = encPath
		if err := refreshComponent(comp, p.cfg.ChecksumAlgorithm); err != nil {
			return err
		}
	}
	b.Encrypted = true
	return nil
}

// verify recomputes each artifact's checksum and compares it to the recorded
// value.
func (p *Pipeline) verify(b *models.Backup) error {
	for _, name := range componentOrder {
		comp := b.Components[name]
		if comp == nil || comp.Location == "" {
			continue
		}
		sum, err := FileChecksum(comp.Location, p.cfg.ChecksumAlgorithm)
		if err != nil {
			return err
		}
		if sum != comp.Checksum {
			return &IntegrityError{Component: name, Want: comp.Checksum, Got: sum}
		}
	}
	return nil
}

// syncRemote uploads the final artifacts in the fixed component order and
// records the last remote reference, so CloudLocation deterministically names
// the metadata snapshot when one was uploaded.
func (p *Pipeline) syncRemote(ctx context.Context, b *models.Backup) error {
	for _, name := range componentOrder {
		comp := b.Components[name]
		if comp == nil || comp.Location == "" {
			continue
		}
		ref, err := p.target.Upload(ctx, comp.Location, filepath.Base(comp.Location))
		if err != nil {
			return err
		}
		b.CloudLocation = ref
	}
	return nil
}
