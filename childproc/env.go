package childproc

import "os"

func envOrEmpty() []string {
	return os.Environ()
}
