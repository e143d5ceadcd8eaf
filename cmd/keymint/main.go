// keymint es el tooling de operador: provisiona namespaces y firma/verifica
// tokens contra un record store filesystem local.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/keymint/internal/cache"
	"github.com/dropDatabas3/keymint/internal/domain/repository"
	"github.com/dropDatabas3/keymint/internal/keystore"
	"github.com/dropDatabas3/keymint/internal/observability/logger"
	"github.com/dropDatabas3/keymint/internal/registry"
	fsadapter "github.com/dropDatabas3/keymint/internal/store/adapters/fs"
)

var (
	dataDir     string
	registryURL string
	registryTok string
)

func newService() (*keystore.Service, error) {
	repo, err := fsadapter.New(dataDir)
	if err != nil {
		return nil, err
	}
	var reg repository.ExternalKeyRegistry
	if registryURL != "" {
		reg = registry.NewHTTP(registryURL, registryTok)
	} else {
		reg = registry.NewMemory()
	}
	c := cache.NewMemory("", time.Minute)
	return keystore.New(repo, c, reg), nil
}

func main() {
	logger.Init(logger.Config{Env: "dev", Level: "warn"})

	root := &cobra.Command{
		Use:           "keymint",
		Short:         "Operador de namespaces de firma de tokens",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&dataDir, "data-dir", "./data/keymint", "directorio del record store fs")
	root.PersistentFlags().StringVar(&registryURL, "registry-url", "", "base URL del registry de claves externas")
	root.PersistentFlags().StringVar(&registryTok, "registry-token", "", "bearer token del registry")

	root.AddCommand(provisionCmd(), signCmd(), verifyCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func provisionCmd() *cobra.Command {
	var (
		alg       string
		ttl       int64
		tolerance int64
		keyRef    string
	)
	cmd := &cobra.Command{
		Use:   "provision <namespace>",
		Short: "Crea un namespace (idempotente)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService()
			if err != nil {
				return err
			}
			err = svc.Provision(context.Background(), keystore.NamespaceOptions{
				ID:                 args[0],
				Algorithm:          alg,
				TokenTTLSecs:       ttl,
				ClockToleranceSecs: tolerance,
				ExternalKeyRef:     keyRef,
			})
			if err != nil {
				return err
			}
			fmt.Printf("namespace %s listo (%s, ttl=%ds, tolerance=%ds)\n",
				args[0], alg, ttl, tolerance)
			return nil
		},
	}
	cmd.Flags().StringVar(&alg, "alg", "HS256", "algoritmo de firma")
	cmd.Flags().Int64Var(&ttl, "ttl", 300, "vida del token en segundos")
	cmd.Flags().Int64Var(&tolerance, "tolerance", 30, "tolerancia de reloj en segundos")
	cmd.Flags().StringVar(&keyRef, "key-ref", "", "referencia de clave externa (asimétrico)")
	return cmd
}

func signCmd() *cobra.Command {
	var claimsJSON string
	cmd := &cobra.Command{
		Use:   "sign <namespace>",
		Short: "Firma un token con la clave vigente del namespace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var claims map[string]any
			if claimsJSON != "" {
				if err := json.Unmarshal([]byte(claimsJSON), &claims); err != nil {
					return fmt.Errorf("claims: %w", err)
				}
			}
			svc, err := newService()
			if err != nil {
				return err
			}
			token, err := svc.Sign(context.Background(), args[0], claims)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&claimsJSON, "claims", "", `claims como JSON (ej: '{"sub":"user-42"}')`)
	return cmd
}

func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <token>",
		Short: "Verifica un token y muestra sus claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService()
			if err != nil {
				return err
			}
			claims, err := svc.Verify(context.Background(), args[0])
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(claims, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}
