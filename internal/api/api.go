package api

import (
	"github.com/google/uuid"

	"leadcrm/internal/activity"
	"leadcrm/internal/config"
	"leadcrm/internal/leads"
	"leadcrm/internal/model"
)

// UserStore is the slice of the storage layer the auth handlers need.
type UserStore interface {
	CreateUser(u *model.User) error
	GetUserByEmail(email string) (model.User, error)
	DeleteUser(id uuid.UUID) error
}

type API struct {
	Leads    *leads.Service
	Users    UserStore
	Activity *activity.Manager
	Cfg      *config.Config
}

func NewAPI(svc *leads.Service, users UserStore, am *activity.Manager, cfg *config.Config) *API {
	return &API{
		Leads:    svc,
		Users:    users,
		Activity: am,
		Cfg:      cfg,
	}
}
