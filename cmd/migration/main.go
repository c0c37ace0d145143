package main

import (
	"fmt"
	"log"
	"os"

	"github.com/hugohenrick/erp-veterinaria/internal/infrastructure/config"
	"github.com/hugohenrick/erp-veterinaria/internal/infrastructure/database"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

const usage = `Uso: migration [flags] <comando>

Comandos:
  up        aplica todas as migrações pendentes
  down      desfaz migrações (--steps, padrão 1)
  version   mostra a versão atual do schema
  force     marca a versão informada (--version) sem executar SQL

Flags:
`

func main() {
	// Carregar variáveis de ambiente
	if err := godotenv.Load(); err != nil {
		log.Printf("Aviso: Arquivo .env não encontrado: %v", err)
	}

	flagSet := pflag.NewFlagSet("migration", pflag.ContinueOnError)
	dir := flagSet.String("dir", "", "diretório das migrações (padrão: database.migrations_path)")
	dsn := flagSet.String("database-url", "", "URL do PostgreSQL (padrão: configuração da aplicação)")
	steps := flagSet.Int("steps", 1, "quantidade de migrações desfeitas pelo down")
	forceVersion := flagSet.Int("version", -1, "versão usada pelo force")
	flagSet.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		log.Fatalf("Erro nos parâmetros: %v", err)
	}
	if flagSet.NArg() != 1 {
		flagSet.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Erro ao carregar configuração: %v", err)
	}
	if *dir == "" {
		*dir = cfg.Database.MigrationsPath
	}
	if *dsn == "" {
		*dsn = cfg.Database.Postgres.ConnectionString()
	}

	migrator, err := database.NewMigrator(*dsn, *dir)
	if err != nil {
		log.Fatalf("Erro ao preparar migrações: %v", err)
	}
	defer migrator.Close()

	if err := run(migrator, flagSet.Arg(0), *steps, *forceVersion); err != nil {
		migrator.Close()
		log.Fatalf("Erro ao executar %s: %v", flagSet.Arg(0), err)
	}
}

func run(migrator *database.Migrator, command string, steps, forceVersion int) error {
	switch command {
	case "up":
		if err := migrator.Up(); err != nil {
			return err
		}
		log.Println("Migrações executadas com sucesso!")

	case "down":
		if steps < 1 {
			return fmt.Errorf("--steps deve ser maior que zero")
		}
		if err := migrator.Down(steps); err != nil {
			return err
		}
		log.Printf("%d migração(ões) desfeita(s)", steps)

	case "version":
		version, dirty, err := migrator.Version()
		if err != nil {
			return err
		}
		log.Printf("Versão atual: %d (dirty=%t)", version, dirty)

	case "force":
		if forceVersion < 0 {
			return fmt.Errorf("informe --version")
		}
		if err := migrator.Force(forceVersion); err != nil {
			return err
		}
		log.Printf("Versão marcada como %d", forceVersion)

	default:
		return fmt.Errorf("comando desconhecido: %s", command)
	}
	return nil
}
