package controllers

import (
	"aslab_go/services"
	"aslab_go/utils"

	"github.com/gofiber/fiber/v2"
)

type RoleController struct {
	perms *services.PermissionService
}

func NewRoleController(perms *services.PermissionService) *RoleController {
	return &RoleController{perms: perms}
}

type RoleRequest struct {
	Name string `json:"name" validate:"required,notblank,max=255"`
}

type SyncPermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

func (rc *RoleController) List(c *fiber.Ctx) error {
	roles, err := rc.perms.ListRoles(c.UserContext())
	if err != nil {
		return respondServiceError(c, err, "Failed to fetch roles")
	}
	return c.JSON(fiber.Map{"roles": roles})
}

// Permissions returns the catalogue grouped by area.
func (rc *RoleController) Permissions(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"permissions": services.AllPermissions(),
		"grouped":     services.GroupedPermissions(),
	})
}

func (rc *RoleController) Create(c *fiber.Ctx) error {
	var req RoleRequest
	if ok, err := utils.BindAndValidate(c, &req); !ok {
		return err
	}
	role, err := rc.perms.CreateRole(c.UserContext(), req.Name)
	if err != nil {
		return respondServiceError(c, err, "Failed to create role")
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Role berhasil dibuat", "role": role})
}

func (rc *RoleController) Update(c *fiber.Ctx) error {
	id, ok, err := idParam(c)
	if !ok {
		return err
	}
	var req RoleRequest
	if ok, err := utils.BindAndValidate(c, &req); !ok {
		return err
	}
	role, err := rc.perms.UpdateRole(c.UserContext(), id, req.Name)
	if err != nil {
		return respondServiceError(c, err, "Failed to update role")
	}
	return c.JSON(fiber.Map{"message": "Role berhasil diperbarui", "role": role})
}

func (rc *RoleController) Delete(c *fiber.Ctx) error {
	id, ok, err := idParam(c)
	if !ok {
		return err
	}
	if err := rc.perms.DeleteRole(c.UserContext(), id); err != nil {
		return respondServiceError(c, err, "Failed to delete role")
	}
	return c.JSON(fiber.Map{"message": "Role berhasil dihapus"})
}

func (rc *RoleController) SyncPermissions(c *fiber.Ctx) error {
	id, ok, err := idParam(c)
	if !ok {
		return err
	}
	var req SyncPermissionsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	role, err := rc.perms.SyncRolePermissions(c.UserContext(), id, req.Permissions)
	if err != nil {
		return respondServiceError(c, err, "Failed to sync permissions")
	}
	return c.JSON(fiber.Map{"message": "Permission role berhasil diperbarui", "role": role})
}
