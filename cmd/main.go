package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/joho/godotenv"

	"assistant-gateway/handler"
	"assistant-gateway/internal/integrations/groq"
	"assistant-gateway/internal/integrations/paramstore"
	"assistant-gateway/internal/integrations/whatsapp"
	"assistant-gateway/internal/repository"
	"assistant-gateway/internal/usecase"
)

func main() {
	ctx := context.Background()

	// Local development convenience; no .env exists in deployed environments.
	_ = godotenv.Load()

	// ---- Configuration (read only here) ----
	stateTable := mustEnv("STATE_TABLE")
	paramPrefix := mustEnv("PARAM_PREFIX")
	contextStrategy := os.Getenv("CONTEXT_STRATEGY")
	contextWindow := envInt("CONTEXT_WINDOW", 20)
	serializeSessions := envBool("SERIALIZE_SESSIONS", false)

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		slog.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}
	stateClient, err := repository.New(awsdynamodb.NewFromConfig(cfg), stateTable)
	if err != nil {
		slog.Error("failed to create state client", "err", err)
		os.Exit(1)
	}
	groqClient, err := groq.NewClient(ssmClient, paramPrefix)
	if err != nil {
		slog.Error("failed to create Groq client", "err", err)
		os.Exit(1)
	}
	whatsappClient, err := whatsapp.NewClient(ssmClient, paramPrefix)
	if err != nil {
		slog.Error("failed to create WhatsApp client", "err", err)
		os.Exit(1)
	}

	// ---- Services ----
	strategy, err := usecase.NewContextStrategy(contextStrategy, contextWindow)
	if err != nil {
		slog.Error("invalid context strategy", "err", err)
		os.Exit(1)
	}
	chatService, err := usecase.NewChatService(ssmClient, groqClient, stateClient, stateClient, stateClient, strategy, paramPrefix, serializeSessions)
	if err != nil {
		slog.Error("failed to create chat service", "err", err)
		os.Exit(1)
	}
	registrationService, err := usecase.NewRegistrationService(stateClient)
	if err != nil {
		slog.Error("failed to create registration service", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	h, err := handler.NewHandler(chatService, registrationService, whatsappClient)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
