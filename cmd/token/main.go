// Команда token выпускает JWT для клиентов API: процесса бота или администратора.
//
//	CONFIG_PATH=config/local.yaml go run ./cmd/token -subject telegram-bot -role bot
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/magabrotheeeer/odds-notifier/internal/config"
	"github.com/magabrotheeeer/odds-notifier/internal/lib/jwt"
)

func main() {
	subject := flag.String("subject", "bot", "subject токена")
	role := flag.String("role", jwt.RoleBot, "роль: bot или admin")
	flag.Parse()

	if *role != jwt.RoleBot && *role != jwt.RoleAdmin {
		log.Fatalf("unknown role %q", *role)
	}

	cfg := config.MustLoad()
	if cfg.JWTToken.SecretKey == "" {
		log.Fatal("jwt secret key is not set")
	}

	token, err := jwt.NewJWTMaker(cfg.JWTToken.SecretKey, cfg.JWTToken.TokenTTL).GenerateToken(*subject, *role)
	if err != nil {
		log.Fatalf("failed to generate token: %s", err)
	}
	fmt.Println(token)
}
