package codec

// RequestStatus is the totally ordered status enum a post-request stream (C5) emits.
// The numeric value IS the weight, so comparison is plain integer comparison.
type RequestStatus uint8

const (
	StatusSource               RequestStatus = 0
	StatusSourceFinalized      RequestStatus = 1
	StatusHyperbridgeDelivered RequestStatus = 2
	StatusHyperbridgeFinalized RequestStatus = 3
	StatusDestination          RequestStatus = 4
	StatusHyperbridgeTimedOut  RequestStatus = 5
	StatusTimedOut             RequestStatus = 6
)

func (s RequestStatus) String() string {
	switch s {
	case StatusSource:
		return "SOURCE"
	case StatusSourceFinalized:
		return "SOURCE_FINALIZED"
	case StatusHyperbridgeDelivered:
		return "HYPERBRIDGE_DELIVERED"
	case StatusHyperbridgeFinalized:
		return "HYPERBRIDGE_FINALIZED"
	case StatusDestination:
		return "DESTINATION"
	case StatusHyperbridgeTimedOut:
		return "HYPERBRIDGE_TIMED_OUT"
	case StatusTimedOut:
		return "TIMED_OUT"
	default:
		return "UNKNOWN_STATUS"
	}
}

// Weight returns s's position in the total order; for RequestStatus this is simply its
// numeric value.
func (s RequestStatus) Weight() int { return int(s) }

// TimeoutStatus is the status enum a timeout continuation stream (C5.2) emits. Its
// weights occupy a disjoint numeric range from RequestStatus so the two can be
// interleaved by CombinedWeight without collision.
type TimeoutStatus uint8

const (
	TimeoutStatusPendingTimeout             TimeoutStatus = 1
	TimeoutStatusDestinationFinalizedTimeout TimeoutStatus = 2
	TimeoutStatusHyperbridgeTimedOut         TimeoutStatus = 3
	TimeoutStatusHyperbridgeFinalizedTimeout TimeoutStatus = 4
	TimeoutStatusTimedOut                    TimeoutStatus = 5
)

func (s TimeoutStatus) String() string {
	switch s {
	case TimeoutStatusPendingTimeout:
		return "PENDING_TIMEOUT"
	case TimeoutStatusDestinationFinalizedTimeout:
		return "DESTINATION_FINALIZED_TIMEOUT"
	case TimeoutStatusHyperbridgeTimedOut:
		return "HYPERBRIDGE_TIMED_OUT"
	case TimeoutStatusHyperbridgeFinalizedTimeout:
		return "HYPERBRIDGE_FINALIZED_TIMEOUT"
	case TimeoutStatusTimedOut:
		return "TIMED_OUT"
	default:
		return "UNKNOWN_TIMEOUT_STATUS"
	}
}

// Weight returns s's position in the combined order. TimeoutStatus weights are offset
// past RequestStatus's seven weights (0..6) so a combined history sorts strictly after
// any RequestStatus with the same nominal milestone, matching §3's "a combined ordering
// interleaves them for sorting mixed histories": a request that has already reached
// HYPERBRIDGE_TIMED_OUT(5)/TIMED_OUT(6) as a RequestStatus should not be reordered
// behind an earlier TimeoutStatus milestone of a *different* request when histories are
// merged, so TimeoutStatus weights are placed at 7..11.
func (s TimeoutStatus) Weight() int { return int(s) + 6 }

// CombinedWeight is anything that has a position in the single merged ordering used to
// sort a request's full (possibly mixed RequestStatus/TimeoutStatus) history.
type CombinedWeight interface{ Weight() int }
