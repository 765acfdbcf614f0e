package internaldefs

import (
	"github.com/edudashpro/sessionctl"
)

// CounterDef names one controller counter for export.
type CounterDef struct {
	ID   sessionctl.MetricID
	Name string
	Help string
}

// HistogramDef names one controller latency histogram for export.
type HistogramDef struct {
	ID   sessionctl.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in render order.
var CounterDefs = []CounterDef{
	{ID: sessionctl.MetricSignInSuccess, Name: "sessionctl_sign_in_success_total", Help: "Successful password sign-ins."},
	{ID: sessionctl.MetricSignInFailure, Name: "sessionctl_sign_in_failure_total", Help: "Rejected or failed password sign-ins."},
	{ID: sessionctl.MetricSignUpSuccess, Name: "sessionctl_sign_up_success_total", Help: "Accepted registrations."},
	{ID: sessionctl.MetricSignUpFailure, Name: "sessionctl_sign_up_failure_total", Help: "Rejected or failed registrations."},
	{ID: sessionctl.MetricSignOutRequested, Name: "sessionctl_sign_out_requested_total", Help: "Sign-out requests delegated to the provider."},
	{ID: sessionctl.MetricSignOutFailure, Name: "sessionctl_sign_out_failure_total", Help: "Sign-out requests the provider failed."},
	{ID: sessionctl.MetricPasswordResetRequest, Name: "sessionctl_password_reset_request_total", Help: "Password reset emails requested."},
	{ID: sessionctl.MetricPasswordResetFailure, Name: "sessionctl_password_reset_failure_total", Help: "Password reset requests that failed."},
	{ID: sessionctl.MetricPasswordUpdateSuccess, Name: "sessionctl_password_update_success_total", Help: "Successful password changes."},
	{ID: sessionctl.MetricPasswordUpdateFailure, Name: "sessionctl_password_update_failure_total", Help: "Rejected or failed password changes."},
	{ID: sessionctl.MetricEventSignedIn, Name: "sessionctl_event_signed_in_total", Help: "SIGNED_IN events received from the provider."},
	{ID: sessionctl.MetricEventSignedOut, Name: "sessionctl_event_signed_out_total", Help: "SIGNED_OUT events received from the provider."},
	{ID: sessionctl.MetricEventOther, Name: "sessionctl_event_other_total", Help: "Passive auth events received from the provider."},
	{ID: sessionctl.MetricDuplicateSignInSuppressed, Name: "sessionctl_duplicate_sign_in_suppressed_total", Help: "SIGNED_IN events for the held identity that skipped a profile load."},
	{ID: sessionctl.MetricProfileLoadStarted, Name: "sessionctl_profile_load_started_total", Help: "Profile loads started."},
	{ID: sessionctl.MetricProfileLoadSuccess, Name: "sessionctl_profile_load_success_total", Help: "Profile loads that resolved a profile."},
	{ID: sessionctl.MetricProfileLoadNotFound, Name: "sessionctl_profile_load_not_found_total", Help: "Profile loads that found no row."},
	{ID: sessionctl.MetricProfileLoadDenied, Name: "sessionctl_profile_load_denied_total", Help: "Profile loads rejected by an access policy."},
	{ID: sessionctl.MetricProfileLoadError, Name: "sessionctl_profile_load_error_total", Help: "Profile loads that failed for any other reason."},
	{ID: sessionctl.MetricProfileLoadDiscarded, Name: "sessionctl_profile_load_discarded_total", Help: "Profile load results dropped as stale."},
	{ID: sessionctl.MetricNavigationFallback, Name: "sessionctl_navigation_fallback_total", Help: "Post sign-out navigations that fell back to push."},
	{ID: sessionctl.MetricNavigationFailure, Name: "sessionctl_navigation_failure_total", Help: "Post sign-out navigations that failed entirely."},
	{ID: sessionctl.MetricProviderPanic, Name: "sessionctl_provider_panic_total", Help: "Recovered panics from the auth provider."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: sessionctl.MetricProfileLoadLatency, Name: "sessionctl_profile_load_latency_seconds", Help: "Profile lookup latency."},
}

// HistogramBounds are the upper bounds, in seconds, of the controller's
// latency buckets.
var HistogramBounds = []string{
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"1",
	"2.5",
	"5",
	"+Inf",
}

// HistogramBoundSuffix spells HistogramBounds for instrument names.
var HistogramBoundSuffix = []string{
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"2_5",
	"5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
