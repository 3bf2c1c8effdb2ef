package controllers

import (
	"aslab_go/middleware"
	"aslab_go/models"
	"aslab_go/services"
	"aslab_go/utils"

	"github.com/gofiber/fiber/v2"
)

type UserController struct {
	users *services.UserService
}

func NewUserController(users *services.UserService) *UserController {
	return &UserController{users: users}
}

func userDTOs(list []models.User) []utils.UserDTO {
	out := make([]utils.UserDTO, 0, len(list))
	for _, u := range list {
		out = append(out, utils.ToUserDTO(u))
	}
	return out
}

// GetUsers returns users filtered by search and role.
func (uc *UserController) GetUsers(c *fiber.Ctx) error {
	list, err := uc.users.List(c.UserContext(), services.UserFilter{
		Search: c.Query("search"),
		Role:   c.Query("role"),
	})
	if err != nil {
		return respondServiceError(c, err, "Failed to fetch users")
	}
	return c.JSON(fiber.Map{"users": userDTOs(list), "total": len(list)})
}

func (uc *UserController) GetUser(c *fiber.Ctx) error {
	id, ok, err := idParam(c)
	if !ok {
		return err
	}
	u, err := uc.users.Get(c.UserContext(), id)
	if err != nil {
		return respondServiceError(c, err, "Failed to fetch user")
	}
	return c.JSON(fiber.Map{"user": utils.ToUserDTO(*u)})
}

func (uc *UserController) CreateUser(c *fiber.Ctx) error {
	var req services.UserInput
	if ok, err := utils.BindAndValidate(c, &req); !ok {
		return err
	}
	u, err := uc.users.Create(c.UserContext(), req)
	if err != nil {
		return respondServiceError(c, err, "Failed to create user")
	}
	middleware.LogActivity(c, "CREATE", "users", u.ID, fiber.Map{"email": u.Email, "role": u.Role})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "User berhasil ditambahkan", "user": utils.ToUserDTO(*u)})
}

func (uc *UserController) UpdateUser(c *fiber.Ctx) error {
	id, ok, err := idParam(c)
	if !ok {
		return err
	}
	var req services.UserInput
	if ok, err := utils.BindAndValidate(c, &req); !ok {
		return err
	}
	u, err := uc.users.Update(c.UserContext(), id, req)
	if err != nil {
		return respondServiceError(c, err, "Failed to update user")
	}
	return c.JSON(fiber.Map{"message": "User berhasil diperbarui", "user": utils.ToUserDTO(*u)})
}

func (uc *UserController) DeleteUser(c *fiber.Ctx) error {
	actor, ok, err := currentUser(c)
	if !ok {
		return err
	}
	id, ok, err := idParam(c)
	if !ok {
		return err
	}
	if err := uc.users.Delete(c.UserContext(), actor.ID, id); err != nil {
		return respondServiceError(c, err, "Failed to delete user")
	}
	return c.JSON(fiber.Map{"message": "User berhasil dihapus"})
}

func (uc *UserController) ToggleStatus(c *fiber.Ctx) error {
	actor, ok, err := currentUser(c)
	if !ok {
		return err
	}
	id, ok, err := idParam(c)
	if !ok {
		return err
	}
	active, err := uc.users.ToggleStatus(c.UserContext(), actor.ID, id)
	if err != nil {
		return respondServiceError(c, err, "Failed to toggle status")
	}
	msg := "User dinonaktifkan"
	if active {
		msg = "User diaktifkan"
	}
	return c.JSON(fiber.Map{"message": msg, "is_active": active})
}

func (uc *UserController) Aslabs(c *fiber.Ctx) error {
	list, err := uc.users.Aslabs(c.UserContext())
	if err != nil {
		return respondServiceError(c, err, "Failed to fetch aslabs")
	}
	out := make([]utils.UserShort, 0, len(list))
	for _, u := range list {
		out = append(out, utils.ToUserShort(u))
	}
	return c.JSON(fiber.Map{"aslabs": out})
}
