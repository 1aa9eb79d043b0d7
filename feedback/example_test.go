package feedback_test

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonwraymond/feedbackops/cache"
	"github.com/jonwraymond/feedbackops/feedback"
)

func ExampleCoordinator_Request() {
	calls := 0
	provider := feedback.ProviderFunc(func(ctx context.Context, tag string, content []byte) ([]byte, error) {
		calls++
		return []byte(strings.ToUpper(string(content))), nil
	})

	mem, _ := cache.NewMemoryCache(cache.DefaultPolicy())
	co, _ := feedback.New(provider, mem)

	ctx := context.Background()
	first, _ := co.Request(ctx, "shout", []byte("hello"))
	second, _ := co.Request(ctx, "shout", []byte("hello"))

	fmt.Println(string(first), string(second), calls)
	// Output:
	// HELLO HELLO 1
}
