package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"cfgadmin/internal/domain"
	"cfgadmin/internal/wire"
)

func loadRoles(store *Store) (*domain.Roles, error) {
	roles := domain.NewRoles()
	if err := roles.Decode(store.List("role"), domain.DecodeRole); err != nil {
		return nil, err
	}
	return roles, nil
}

func loadUsers(store *Store) (*domain.Users, error) {
	users := domain.NewUsers()
	if err := users.Decode(store.List("user"), domain.DecodeUser); err != nil {
		return nil, err
	}
	return users, nil
}

func registerRoleUpdate(api huma.API, store *Store) {
	huma.Register(api, huma.Operation{
		OperationID: "patch-roles",
		Method:      http.MethodPatch,
		Path:        "/api/admin/security/roles",
		Summary:     "Add and remove users from gocd roles",
		Errors:      []int{http.StatusBadRequest, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, _ *struct{}) (*listOutput, error) {
		var update domain.RoleUpdate
		if herr := decodeBody(ctx, &update); herr != nil {
			return nil, herr
		}
		roles, err := loadRoles(store)
		if err != nil {
			return nil, handleError(err)
		}
		users, err := loadUsers(store)
		if err != nil {
			return nil, handleError(err)
		}
		if err := update.Apply(roles, users); err != nil {
			return nil, newAPIError(http.StatusUnprocessableEntity, err.Error(), nil)
		}
		for _, r := range roles.All() {
			if err := store.Replace("role", r.Identity(), r); err != nil {
				return nil, handleError(err)
			}
		}
		for _, u := range users.All() {
			if err := store.Replace("user", u.Identity(), u); err != nil {
				return nil, handleError(err)
			}
		}
		items := make([]any, 0, roles.Len())
		for _, d := range store.List("role") {
			items = append(items, rawToMap(d))
		}
		return &listOutput{Body: map[string]any{"_embedded": map[string]any{"roles": items}}}, nil
	})
}

func registerUserState(api huma.API, store *Store) {
	huma.Register(api, huma.Operation{
		OperationID: "patch-user-state",
		Method:      http.MethodPatch,
		Path:        "/api/users/operations/state",
		Summary:     "Enable or disable users",
		Errors:      []int{http.StatusBadRequest, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, _ *struct{}) (*messageOutput, error) {
		var update domain.UserStateUpdate
		if herr := decodeBody(ctx, &update); herr != nil {
			return nil, herr
		}
		if len(update.Users) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "Request body must contain a non-empty 'users' list.", nil)
		}
		users, err := loadUsers(store)
		if err != nil {
			return nil, handleError(err)
		}
		var missing []string
		for _, login := range update.Users {
			if _, ok := users.Find(login); !ok {
				missing = append(missing, login)
			}
		}
		if len(missing) > 0 {
			return nil, newAPIError(http.StatusUnprocessableEntity,
				fmt.Sprintf("Users '%s' were not found.", strings.Join(missing, ", ")),
				map[string]any{"non_existent_users": missing})
		}
		for _, login := range update.Users {
			u, _ := users.Find(login)
			u.Enabled = update.Operations.Enable
			if err := store.Replace("user", login, u); err != nil {
				return nil, handleError(err)
			}
		}
		state := "disabled"
		if update.Operations.Enable {
			state = "enabled"
		}
		return message("Users '%s' were %s successfully.", strings.Join(update.Users, ", "), state), nil
	})
}

func registerMaterialTest(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "material-test",
		Method:      http.MethodPost,
		Path:        "/api/admin/internal/material_test",
		Summary:     "Check a material connection",
		Errors:      []int{http.StatusBadRequest, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, _ *struct{}) (*messageOutput, error) {
		data := bodyBytes(ctx)
		if len(strings.TrimSpace(string(data))) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "body required", nil)
		}
		m, err := domain.DecodeMaterial(data)
		if err != nil {
			return nil, newAPIError(http.StatusUnprocessableEntity, fmt.Sprintf("Failed to parse material: %v", err), nil)
		}
		if errs := m.Validate().Map(); len(errs) > 0 {
			out := make(map[string][]string, len(errs))
			for k, msgs := range errs {
				out[wire.SnakeCase(k)] = msgs
			}
			return nil, newAPIError(http.StatusUnprocessableEntity,
				"There was an error with the material configuration.", map[string]any{"errors": out})
		}
		return message("Connection OK."), nil
	})
}
