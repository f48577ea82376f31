package order

import "teestyle/internal/models"

// transitions is the authoritative table of allowed status moves.
// delivered, rejected, cancelled and refunded are terminal, except that
// a delivered order may still come back as returned. cancelled, returned
// and refunded act as exceptional exits from the pre-delivery states.
var transitions = map[models.OrderStatus][]models.OrderStatus{
	models.StatusAwaitingApproval: {
		models.StatusApproved, models.StatusRejected, models.StatusProcessing,
		models.StatusCancelled, models.StatusReturned, models.StatusRefunded,
	},
	models.StatusApproved: {
		models.StatusProcessing, models.StatusPacked,
		models.StatusCancelled, models.StatusReturned, models.StatusRefunded,
	},
	models.StatusProcessing: {
		models.StatusPacked, models.StatusShipped,
		models.StatusCancelled, models.StatusReturned, models.StatusRefunded,
	},
	models.StatusPacked: {
		models.StatusShipped, models.StatusOutForDelivery,
		models.StatusCancelled, models.StatusReturned, models.StatusRefunded,
	},
	models.StatusShipped: {
		models.StatusOutForDelivery, models.StatusDelivered,
		models.StatusCancelled, models.StatusReturned, models.StatusRefunded,
	},
	models.StatusOutForDelivery: {
		models.StatusDelivered,
		models.StatusCancelled, models.StatusReturned, models.StatusRefunded,
	},
	models.StatusDelivered: {models.StatusReturned},
	models.StatusReturned:  {models.StatusRefunded},
	models.StatusRejected:  {},
	models.StatusCancelled: {},
	models.StatusRefunded:  {},
}

func canTransition(from, to models.OrderStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func knownStatus(s models.OrderStatus) bool {
	_, ok := transitions[s]
	return ok
}
