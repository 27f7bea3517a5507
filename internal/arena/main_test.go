package arena

import (
	"os"
	"testing"
)

func TestMain(m *testing.M) {
	Assertions = true
	os.Exit(m.Run())
}
