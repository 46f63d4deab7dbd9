package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads secrets (JWT, Razorpay keys, DSNs) from dotenv files in the
// working directory. Priority: .env.local > .env.<APP_ENV> > .env, and variables
// already set in the process always win. Returns the files that were loaded.
func LoadDotEnv() []string {
	return loadDotEnvFrom(".", os.Getenv("APP_ENV"))
}

func loadDotEnvFrom(dir, env string) []string {
	candidates := []string{".env.local"}
	if env != "" {
		candidates = append(candidates, ".env."+env)
	}
	candidates = append(candidates, ".env")

	var loaded []string
	for _, name := range candidates {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			loaded = append(loaded, path)
		}
	}
	// godotenv.Load 는 기존 값을 덮어쓰지 않으므로 앞의 파일이 우선
	if len(loaded) > 0 {
		_ = godotenv.Load(loaded...)
	}
	return loaded
}
