package port

type Metrics interface {
	// ObserveOperation records one engine call; outcome is "ok" or the error kind
	ObserveOperation(operation, outcome string)

	// ObserveLoad records the load of a facility after a mutation
	ObserveLoad(facilityID int64, load, maxCapacity int)

	// ForgetFacility drops the load series of a deleted facility
	ForgetFacility(facilityID int64)
}
