package azure

import (
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	azfake "github.com/Azure/azure-sdk-for-go/sdk/azcore/fake"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources/fake"
)

const subscriptionID = "00000000-0000-0000-0000-000000000001"

type fakeClock struct {
	now   time.Time
	waits []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.waits = append(c.waits, d)
	c.now = c.now.Add(d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

var testRetry = RetryConfig{Delay: time.Second, MaxDelay: 4 * time.Second, MaxDuration: 10 * time.Second}

func testCaller(clk *fakeClock) apiCaller {
	return apiCaller{config: testRetry, clock: clk}
}

// testClients connects ARM resources clients to an in-process fake server.
// SDK level retries are off so that only apiCaller retries.
func testClients(srv *fake.ServerFactory, clk *fakeClock) *Clients {
	return &Clients{
		Credential:     &azfake.TokenCredential{},
		SubscriptionID: subscriptionID,
		Options: &arm.ClientOptions{
			ClientOptions: azcore.ClientOptions{
				Transport: fake.NewServerFactoryTransport(srv),
				Retry:     policy.RetryOptions{MaxRetries: -1},
			},
		},
		Retry: testRetry,
		Clock: clk,
	}
}
