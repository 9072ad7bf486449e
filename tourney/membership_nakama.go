package tourney

import (
	"context"

	"github.com/heroiclabs/nakama-common/api"
)

const nakamaGroupPageSize = 100

// NakamaGroups is the slice of runtime.NakamaModule used to resolve provinces from Nakama groups.
type NakamaGroups interface {
	GroupsList(ctx context.Context, name, langTag string, members *int, open *bool, limit int, cursor string) ([]*api.Group, string, error)
	GroupUsersList(ctx context.Context, id string, limit int, state *int, cursor string) ([]*api.GroupUserList_GroupUser, string, error)
	UserGroupsList(ctx context.Context, userID string, limit int, state *int, cursor string) ([]*api.UserGroupList_UserGroup, string, error)
}

// NakamaMembership treats every Nakama group as a province. Pending join requests are not membership.
type NakamaMembership struct {
	nk NakamaGroups
}

func NewNakamaMembership(nk NakamaGroups) *NakamaMembership {
	return &NakamaMembership{nk: nk}
}

func (m *NakamaMembership) ListGroups(ctx context.Context) ([]string, error) {
	ids := make([]string, 0)
	cursor := ""
	for {
		groups, next, err := m.nk.GroupsList(ctx, "", "", nil, nil, nakamaGroupPageSize, cursor)
		if err != nil {
			return nil, ErrMembershipNotReady
		}
		for _, group := range groups {
			ids = append(ids, group.Id)
		}
		if next == "" {
			return ids, nil
		}
		cursor = next
	}
}

func (m *NakamaMembership) MembersOf(ctx context.Context, groupID string) ([]string, error) {
	members := make([]string, 0)
	cursor := ""
	for {
		users, next, err := m.nk.GroupUsersList(ctx, groupID, nakamaGroupPageSize, nil, cursor)
		if err != nil {
			return nil, ErrMembershipNotReady
		}
		for _, groupUser := range users {
			if groupUser.User == nil {
				continue
			}
			if groupUser.State != nil && groupUser.State.Value == int32(api.GroupUserList_GroupUser_JOIN_REQUEST) {
				continue
			}
			members = append(members, groupUser.User.Id)
		}
		if next == "" {
			return members, nil
		}
		cursor = next
	}
}

func (m *NakamaMembership) GroupOf(ctx context.Context, playerID string) (string, bool, error) {
	userGroups, _, err := m.nk.UserGroupsList(ctx, playerID, nakamaGroupPageSize, nil, "")
	if err != nil {
		return "", false, ErrMembershipNotReady
	}
	for _, userGroup := range userGroups {
		if userGroup.Group == nil {
			continue
		}
		if userGroup.State != nil && userGroup.State.Value == int32(api.UserGroupList_UserGroup_JOIN_REQUEST) {
			continue
		}
		return userGroup.Group.Id, true, nil
	}
	return "", false, nil
}
