package notifier

import "fmt"

func errTooManyRetries(url string) error {
	return fmt.Errorf("%s: exceeded retry budget", url)
}

func httpStatusError(url string, status int) error {
	return fmt.Errorf("%s: unexpected status %d", url, status)
}
