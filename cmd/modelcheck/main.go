// Command modelcheck checks that an OpenAI-compatible endpoint accepts the
// configured key and model by sending one short text message.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"

	"courtside/internal/infra"
	"courtside/internal/providers/chat"
)

const defaultCheckMessage = "Hello, this is a test. Please reply 'test passed'."

func main() {
	_ = godotenv.Load()

	var (
		keyFlag     string
		baseURLFlag string
		modelFlag   string
		messageFlag string
		timeoutFlag time.Duration
	)
	flag.StringVar(&keyFlag, "key", "", "API key (fallbacks to OPENAI_API_KEY)")
	flag.StringVar(&baseURLFlag, "base-url", "", "API base URL (fallbacks to OPENAI_BASE_URL)")
	flag.StringVar(&modelFlag, "model", "gpt-3.5-turbo", "Model to check")
	flag.StringVar(&messageFlag, "message", defaultCheckMessage, "Text sent to the model")
	flag.DurationVar(&timeoutFlag, "timeout", 30*time.Second, "Request timeout")
	flag.Parse()

	key := strings.TrimSpace(keyFlag)
	if key == "" {
		key = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	}
	if key == "" {
		fmt.Fprintln(os.Stderr, "API key is required via -key or OPENAI_API_KEY")
		os.Exit(1)
	}
	baseURL := strings.TrimSpace(baseURLFlag)
	if baseURL == "" {
		baseURL = os.Getenv("OPENAI_BASE_URL")
	}

	logger := infra.NewLogger("cli").With().Str("cmd", "modelcheck").Logger()
	client := chat.NewClient(chat.Options{
		APIKey:         key,
		BaseURL:        baseURL,
		Logger:         &logger,
		RequestTimeout: timeoutFlag,
	})

	fmt.Printf("Model:    %s\n", modelFlag)
	fmt.Printf("Base URL: %s\n", baseURLOrDefault(baseURL))
	fmt.Printf("Key:      %s...\n", mask(key))

	ctx, cancel := context.WithTimeout(context.Background(), timeoutFlag)
	defer cancel()

	resp, err := client.Ping(ctx, modelFlag, messageFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "request failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("HTTP status: %d\n", resp.StatusCode)

	if !gjson.Valid(resp.Body) {
		fmt.Println("Response is not valid JSON:")
		fmt.Println(resp.Body)
		os.Exit(1)
	}
	fmt.Println("\n--- response ---")
	fmt.Print(string(pretty.Pretty([]byte(resp.Body))))

	parsed := gjson.Parse(resp.Body)
	if resp.StatusCode != 200 || !parsed.Get("choices").Exists() {
		fmt.Println("\nCheck failed. Check the error above.")
		os.Exit(1)
	}
	fmt.Println("\nCheck passed. Model is reachable.")
	fmt.Printf("Reply: %s\n", parsed.Get("choices.0.message.content").String())
}

func baseURLOrDefault(v string) string {
	if strings.TrimSpace(v) == "" {
		return "https://api.openai.com/v1"
	}
	return v
}

func mask(key string) string {
	if len(key) <= 10 {
		return key[:len(key)/2]
	}
	return key[:10]
}
