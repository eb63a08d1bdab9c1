package process_test

import (
	"os"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/crust-sim/crust-gym/internal/testutil"
)

func TestMain(m *testing.M) {
	if testutil.IsFakeSim() {
		os.Exit(testutil.RunFakeSim(os.Stdin, os.Stdout, os.Stderr))
	}
	// Set DEBUG_TESTS=1 to see simulator traffic: DEBUG_TESTS=1 go test ./sim/... -v
	if os.Getenv("DEBUG_TESTS") == "" {
		logrus.SetLevel(logrus.WarnLevel)
	} else {
		logrus.SetLevel(logrus.TraceLevel)
	}
	os.Exit(m.Run())
}
