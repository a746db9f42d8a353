package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("STOCKPILE_TEST_MODE") == "" {
			_ = os.Setenv("STOCKPILE_TEST_MODE", "1")
		}
	})
}
