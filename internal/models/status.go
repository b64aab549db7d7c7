package models

// Status describes an order item's state; order headers use the same
// family plus the derived Partially* values and Failed.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusProcessing Status = "Processing"
	StatusShipped    Status = "Shipped"
	StatusDelivered  Status = "Delivered"
	StatusCompleted  Status = "Completed"
	StatusCancelled  Status = "Cancelled"
	StatusReturned   Status = "Returned"

	// Header-only statuses
	StatusPartiallyReturned  Status = "Partially Returned"
	StatusPartiallyCancelled Status = "Partially Cancelled"
	StatusPartiallyDelivered Status = "Partially Delivered"
	StatusFailed             Status = "Failed"
)

// forwardStage maps the fixed fulfilment flow to an ordering.
// Cancelled and Returned are side exits, not stages.
var forwardStage = map[Status]int{
	StatusPending:    0,
	StatusProcessing: 1,
	StatusShipped:    2,
	StatusDelivered:  3,
	StatusCompleted:  4,
}

// CanTransition reports whether an item may move from one status to another.
// The forward flow Pending -> Processing -> Shipped -> Delivered -> Completed
// never moves backward; Cancelled is reachable from Pending or Processing and
// Returned only from Delivered; both are terminal.
func CanTransition(from, to Status) bool {
	if from == to {
		return false
	}
	switch to {
	case StatusCancelled:
		return from == StatusPending || from == StatusProcessing
	case StatusReturned:
		return from == StatusDelivered
	}
	fromStage, ok := forwardStage[from]
	if !ok {
		// Cancelled and Returned are terminal
		return false
	}
	toStage, ok := forwardStage[to]
	if !ok {
		return false
	}
	return toStage > fromStage
}

// Cancellable reports whether an item can still be cancelled
func Cancellable(s Status) bool {
	return s == StatusPending || s == StatusProcessing
}

// uniformable is the set of statuses that, when shared by every item,
// become the header status verbatim.
var uniformable = map[Status]bool{
	StatusDelivered:  true,
	StatusCompleted:  true,
	StatusCancelled:  true,
	StatusReturned:   true,
	StatusShipped:    true,
	StatusProcessing: true,
}

// ReduceOrderStatus derives the order header status from its item statuses.
// It is the only producer of header statuses in business flows; rules apply
// in order and the first match wins.
func ReduceOrderStatus(items []OrderItem) Status {
	if len(items) == 0 {
		return StatusPending
	}

	counts := make(map[Status]int, len(items))
	for _, it := range items {
		counts[it.Status]++
	}

	if len(counts) == 1 {
		for s := range counts {
			if uniformable[s] {
				return s
			}
		}
	}

	if counts[StatusReturned] > 0 {
		return StatusPartiallyReturned
	}
	if counts[StatusCancelled] > 0 {
		return StatusPartiallyCancelled
	}
	if counts[StatusDelivered] > 0 {
		return StatusPartiallyDelivered
	}
	return StatusProcessing
}
