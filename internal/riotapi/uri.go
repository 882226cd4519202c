package riotapi

import (
	"fmt"
	"net/url"

	"github.com/sprintleague/riftwalker/internal/endpoint"
)

// regionBaseURI returns the scheme+host for a region, e.g.
// "https://na1.api.riotgames.com". The region code must render lowercase
// for wire compatibility (Na1 -> na1), per the external interface contract.
func regionBaseURI(r endpoint.Region) string {
	return fmt.Sprintf("https://%s.api.riotgames.com", r.String())
}

// These relative paths are bit-identical to the wire contract and must
// never be reformatted or re-templated differently than shown here.
func summonerByNameURI(r endpoint.Region, name string) string {
	return regionBaseURI(r) + "/lol/summoner/v4/summoners/by-name/" + url.PathEscape(name)
}

func summonerByAccountURI(r endpoint.Region, encryptedAccountID string) string {
	return regionBaseURI(r) + "/lol/summoner/v4/summoners/by-account/" + url.PathEscape(encryptedAccountID)
}

func matchlistByAccountURI(r endpoint.Region, encryptedAccountID string) string {
	return regionBaseURI(r) + "/lol/match/v4/matchlists/by-account/" + url.PathEscape(encryptedAccountID)
}

func matchByIDURI(r endpoint.Region, matchID int64) string {
	return fmt.Sprintf("%s/lol/match/v4/matches/%d", regionBaseURI(r), matchID)
}
