package riotapi

import "github.com/sprintleague/riftwalker/internal/endpoint"

// Method-local enumerations, numbered from zero within each service per
// endpoint.MethodID's contract.
const (
	methodSummonerByAccount uint32 = iota
	methodSummonerByName
)

const (
	methodMatchlistByAccount uint32 = iota
	methodMatchByID
)

func summonerByAccountMethodID() endpoint.Id {
	return endpoint.MethodID(endpoint.ServiceSummonerV4, methodSummonerByAccount)
}

func summonerByNameMethodID() endpoint.Id {
	return endpoint.MethodID(endpoint.ServiceSummonerV4, methodSummonerByName)
}

func matchlistByAccountMethodID() endpoint.Id {
	return endpoint.MethodID(endpoint.ServiceMatchV4, methodMatchlistByAccount)
}

func matchByIDMethodID() endpoint.Id {
	return endpoint.MethodID(endpoint.ServiceMatchV4, methodMatchByID)
}
