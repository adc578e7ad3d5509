package event

import "time"

// Kind identifies one recognized log line category. Each kind is an
// independent trigger: a single line can produce several of them.
type Kind int

const (
	KindNone Kind = iota
	AuctionHouseReached
	ProfileFinished
	WhisperReceived
	BagFreeSpace
	FlyingPath
	CombatStarted
	UnhandledError
	PlayerStuck
	ActiveProfileMentioned
	LowDurability
	VendorGroupTask
	FlightMasterInteract
	ResurrectionStarted
	GoingToVendor
	SellMailRepairDone
	PreparationStarted
	DeathsByPlayers
	TransportRide
	PreparationFinished
	CorpsePositionFailed
	LoginAgain
	AddonDataUnreadable
	LootingFinished
	SellAndMailFailed
	PleaseLoginAgain
	TrainingSkills
	HearthstoneUsed
	TrainedSkills
	VendorPathFailed
	VendorNotFound
	AirborneDestination
	NorthrendRoute
	RepairNeeded
	RestartRequested
	NPCInteractFailed
	MiningOnly
	TravelScript
	GatherScript
	PauseForInput
	GossipFailed
	TrainProfession
	ProfileMentioned
	CorpseRunFailed
	MailError
	MailWindowError
	GoToOutlands
	CorpseRunFailedRepeat
	StopNow
)

var kindNames = map[Kind]string{
	AuctionHouseReached:    "auction_house_reached",
	ProfileFinished:        "profile_finished",
	WhisperReceived:        "whisper_received",
	BagFreeSpace:           "bag_free_space",
	FlyingPath:             "flying_path",
	CombatStarted:          "combat_started",
	UnhandledError:         "unhandled_error",
	PlayerStuck:            "player_stuck",
	ActiveProfileMentioned: "active_profile_mentioned",
	LowDurability:          "low_durability",
	VendorGroupTask:        "vendor_group_task",
	FlightMasterInteract:   "flight_master_interact",
	ResurrectionStarted:    "resurrection_started",
	GoingToVendor:          "going_to_vendor",
	SellMailRepairDone:     "sell_mail_repair_done",
	PreparationStarted:     "preparation_started",
	DeathsByPlayers:        "deaths_by_players",
	TransportRide:          "transport_ride",
	PreparationFinished:    "preparation_finished",
	CorpsePositionFailed:   "corpse_position_failed",
	LoginAgain:             "login_again",
	AddonDataUnreadable:    "addon_data_unreadable",
	LootingFinished:        "looting_finished",
	SellAndMailFailed:      "sell_and_mail_failed",
	PleaseLoginAgain:       "please_login_again",
	TrainingSkills:         "training_skills",
	HearthstoneUsed:        "hearthstone_used",
	TrainedSkills:          "trained_skills",
	VendorPathFailed:       "vendor_path_failed",
	VendorNotFound:         "vendor_not_found",
	AirborneDestination:    "airborne_destination",
	NorthrendRoute:         "northrend_route",
	RepairNeeded:           "repair_needed",
	RestartRequested:       "restart_requested",
	NPCInteractFailed:      "npc_interact_failed",
	MiningOnly:             "mining_only",
	TravelScript:           "travel_script",
	GatherScript:           "gather_script",
	PauseForInput:          "pause_for_input",
	GossipFailed:           "gossip_failed",
	TrainProfession:        "train_profession",
	ProfileMentioned:       "profile_mentioned",
	CorpseRunFailed:        "corpse_run_failed",
	MailError:              "mail_error",
	MailWindowError:        "mail_window_error",
	GoToOutlands:           "go_to_outlands",
	CorpseRunFailedRepeat:  "corpse_run_failed_repeat",
	StopNow:                "stop_now",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// LogEvent is one classified occurrence from the log stream. SkillLevel is
// only meaningful for TrainingSkills/TrainedSkills.
type LogEvent struct {
	Kind       Kind
	Line       string
	At         time.Time
	SkillLevel int
}
