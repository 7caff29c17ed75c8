package integration

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/akshayaggarwal99/judge/internal/api"
	"github.com/akshayaggarwal99/judge/internal/coupler"
	"github.com/akshayaggarwal99/judge/internal/lang"
	"github.com/akshayaggarwal99/judge/internal/pipeline"
	"github.com/akshayaggarwal99/judge/internal/sandbox"
)

const (
	ServerPort = "8091" // different from the default to avoid clashing with a dev server
	BaseURL    = "http://localhost:" + ServerPort
)

func TestMain(m *testing.M) {
	if _, err := exec.LookPath("isolate"); err != nil {
		fmt.Println("isolate binary not found on PATH, skipping integration tests")
		os.Exit(0)
	}

	registry := lang.NewRegistry([]*lang.Descriptor{
		{Name: "bash", SourceExt: ".sh", Interpreter: &lang.Program{Path: "bash"}},
	})

	driver := sandbox.NewIsolateDriver(sandbox.IsolateDriverConfig{NumBoxes: 4})
	pl := pipeline.New(driver)
	ip := pipeline.NewInteractive(driver, coupler.New("isolate", false))

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	api.NewHandler(registry, pl, ip, "").RegisterRoutes(e)

	go func() {
		if err := e.Start(":" + ServerPort); err != nil && err != http.ErrServerClosed {
			fmt.Printf("server failed: %v\n", err)
			os.Exit(1)
		}
	}()

	if !waitForServer() {
		fmt.Println("timeout waiting for test server")
		os.Exit(1)
	}

	code := m.Run()
	e.Shutdown(context.Background())
	os.Exit(code)
}

func waitForServer() bool {
	for i := 0; i < 20; i++ {
		resp, err := http.Get(BaseURL + "/")
		if err == nil {
			resp.Body.Close()
			return true
		}
		time.Sleep(250 * time.Millisecond)
	}
	return false
}
