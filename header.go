package secheaders

import "strings"

const (
	HeaderPoweredBy               = "X-Powered-By"
	HeaderFrameOptions            = "X-Frame-Options"
	HeaderXSSProtection           = "X-XSS-Protection"
	HeaderContentTypeOptions      = "X-Content-Type-Options"
	HeaderStrictTransportSecurity = "Strict-Transport-Security"
	HeaderReferrerPolicy          = "Referrer-Policy"
	HeaderPermissionsPolicy       = "Permissions-Policy"
	HeaderFeaturePolicy           = "Feature-Policy"

	valueSeparator = "; "
)

// Header is a statically configured response header.
// Multiple values are joined with "; ", and a header with an empty value is removed from the response.
type Header struct {
	Name   string
	Values []string
}

func NewHeader(name string, values ...string) Header {
	return Header{Name: name, Values: values}
}

// Value returns the header value as it will be written.
func (h Header) Value() string {
	return strings.Join(h.Values, valueSeparator)
}

// disabledFeatures are turned off in the default Feature-Policy header.
var disabledFeatures = []string{
	"accelerometer",
	"ambient-light-sensor",
	"autoplay",
	"battery",
	"camera",
	"display-capture",
	"document-domain",
	"encrypted-media",
	"execution-while-not-rendered",
	"execution-while-out-of-viewport",
	"fullscreen",
	"geolocation",
	"gyroscope",
	"layout-animations",
	"legacy-image-formats",
	"magnetometer",
	"microphone",
	"midi",
	"navigation-override",
	"oversized-images",
	"payment",
	"picture-in-picture",
	"publickey-credentials",
	"sync-xhr",
	"usb",
	"wake-lock",
	"xr-spatial-tracking",
}

// DefaultHeaders returns the static headers sent when [Config.Headers] is nil.
func DefaultHeaders() []Header {
	features := make([]string, len(disabledFeatures))
	for i, feature := range disabledFeatures {
		features[i] = feature + " 'none'"
	}
	return []Header{
		NewHeader(HeaderPoweredBy, ""),
		NewHeader(HeaderFrameOptions, "DENY"),
		NewHeader(HeaderXSSProtection, "1; mode=block"),
		NewHeader(HeaderContentTypeOptions, "nosniff"),
		NewHeader(HeaderStrictTransportSecurity, "max-age=31536000; includeSubdomains; preload"),
		NewHeader(HeaderReferrerPolicy, "no-referrer-when-downgrade"),
		NewHeader(HeaderPermissionsPolicy, "interest-cohort=()"),
		NewHeader(HeaderFeaturePolicy, features...),
	}
}
