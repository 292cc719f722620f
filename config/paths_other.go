//go:build !windows

package config

func defaultExecutablePaths() []string {
	return []string{
		"/usr/bin/google-chrome",
		"/usr/bin/chromium",
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	}
}
