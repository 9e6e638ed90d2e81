package magiclink

import (
	"github.com/mileusna/useragent"
)

// DescribeDevice turns a User-Agent header into "Firefox 128.0 on Windows 10".
func DescribeDevice(userAgentString string) string {
	if userAgentString == "" {
		return "Unknown device"
	}

	ua := useragent.Parse(userAgentString)

	browser := "Unknown browser"
	if ua.Name != "" {
		browser = ua.Name
		if ua.Version != "" {
			browser += " " + ua.Version
		}
	}

	if ua.OS == "" {
		return browser
	}

	os := ua.OS
	if ua.OSVersion != "" {
		os += " " + ua.OSVersion
	}
	return browser + " on " + os
}
