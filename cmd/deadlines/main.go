package main

import (
	"context"
	"fmt"
	"os"
)

// version задаётся при сборке: go build -ldflags "-X 'main.version=1.2.3'"
var version = "dev"

func main() {
	// Русский комментарий: Главная точка входа.
	// 1. Загружаем .env (если есть)
	// 2. Собираем и валидируем конфигурацию — при ошибке выходим с кодом 1
	// 3. Настраиваем логгер (если включён)
	// 4. Создаём и подключаем Telegram клиент (если включён)
	// 5. Ждём SIGINT/SIGTERM, затем вызываем shutdown-хук

	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}
