package database

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Migrator aplica as migrações SQL do diretório informado
type Migrator struct {
	m *migrate.Migrate
}

// NewMigrator cria o migrador a partir da URL do banco e do diretório de migrações
func NewMigrator(databaseURL, dir string) (*Migrator, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("erro ao resolver diretório de migrações: %w", err)
	}

	m, err := migrate.New("file://"+filepath.ToSlash(abs), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("erro ao criar migrate: %w", err)
	}
	return &Migrator{m: m}, nil
}

// Up aplica todas as migrações pendentes
func (mg *Migrator) Up() error {
	if err := mg.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("erro ao aplicar migrações: %w", err)
	}
	return nil
}

// Down desfaz a quantidade de migrações informada
func (mg *Migrator) Down(steps int) error {
	if steps <= 0 {
		return fmt.Errorf("quantidade de passos deve ser positiva")
	}
	if err := mg.m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("erro ao reverter migrações: %w", err)
	}
	return nil
}

// Version retorna a versão atual e se o banco ficou em estado inconsistente
func (mg *Migrator) Version() (uint, bool, error) {
	version, dirty, err := mg.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// Force marca a versão sem executar migrações (recuperação de estado dirty)
func (mg *Migrator) Force(version int) error {
	return mg.m.Force(version)
}

// Close libera as conexões do migrador
func (mg *Migrator) Close() error {
	srcErr, dbErr := mg.m.Close()
	return errors.Join(srcErr, dbErr)
}

// RunMigrations aplica todas as migrações pendentes
func RunMigrations(databaseURL, dir string) error {
	mg, err := NewMigrator(databaseURL, dir)
	if err != nil {
		return err
	}
	defer mg.Close()

	return mg.Up()
}
