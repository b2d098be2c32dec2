package serve

import (
	"fmt"
	"net/http"
	"time"

	"github.com/mitchellh/cli"
	"github.com/pkg/browser"
)

// openWhenReady polls the server's health endpoint and opens the browser
// once it responds, giving up quietly after a bound.
func openWhenReady(ui cli.Ui, baseURL string) {
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		res, err := http.Get(baseURL + "/health")
		if err == nil {
			res.Body.Close()
			if res.StatusCode == http.StatusOK {
				if err := browser.OpenURL(baseURL); err != nil {
					ui.Warn(fmt.Sprintf("could not open browser: %v", err))
				}
				return
			}
		}
		time.Sleep(250 * time.Millisecond)
	}
	ui.Warn("server not reachable, skipping browser launch")
}
