package mapper

import (
	"sort"
	"time"

	"github.com/fieldcrm/crm-api/internal/domain"
)

const timestampLayout = "2006-01-02T15:04:05Z"

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(timestampLayout)
	return &s
}

// ToUserDTO converts User to UserDTO
func ToUserDTO(user *domain.User) domain.UserDTO {
	return domain.UserDTO{
		ID:          user.ID,
		Name:        user.Name,
		Email:       user.Email,
		Phone:       user.Phone,
		Role:        user.Role,
		IsBlocked:   user.IsBlocked,
		Modules:     user.ActiveModules(),
		LocationIDs: user.LocationIDs(),
		CreatedAt:   user.CreatedAt.Format(timestampLayout),
	}
}

// ToLocationDTO converts Location to LocationDTO
func ToLocationDTO(location *domain.Location) domain.LocationDTO {
	return domain.LocationDTO{ID: location.ID, Name: location.Name}
}

// ToModuleAccessDTO converts ModuleAccess to ModuleAccessDTO
func ToModuleAccessDTO(access *domain.ModuleAccess) domain.ModuleAccessDTO {
	return domain.ModuleAccessDTO{
		ModuleCode:    access.ModuleCode,
		Active:        access.Active,
		ActivatedAt:   access.ActivatedAt.Format(timestampLayout),
		DeactivatedAt: formatTime(access.DeactivatedAt),
	}
}

// ToTeamDTO converts Team to TeamDTO
func ToTeamDTO(team *domain.Team) domain.TeamDTO {
	return domain.TeamDTO{
		ID:            team.ID,
		ModuleCode:    team.ModuleCode,
		Name:          team.Name,
		TechnicianAID: team.TechnicianAID,
		TechnicianBID: team.TechnicianBID,
		Active:        team.Active,
	}
}

// ToTechnicianSettingsDTO converts TechnicianSettings to TechnicianSettingsDTO
func ToTechnicianSettingsDTO(s *domain.TechnicianSettings) domain.TechnicianSettingsDTO {
	return domain.TechnicianSettingsDTO{
		UserID:          s.UserID,
		ModuleCode:      s.ModuleCode,
		WorkingDaysGoal: s.WorkingDaysGoal,
		RevenueGoal:     s.RevenueGoal,
	}
}

// ToOrderDTO converts Order to OrderDTO
func ToOrderDTO(order *domain.Order) domain.OrderDTO {
	return domain.OrderDTO{
		ID:              order.ID,
		OrderNumber:     order.OrderNumber,
		Type:            order.Type,
		Status:          order.Status,
		Operator:        order.Operator,
		AssignedToID:    order.AssignedToID,
		Date:            order.Date.Format("2006-01-02"),
		TimeSlot:        order.TimeSlot,
		FailureReason:   order.FailureReason,
		Notes:           order.Notes,
		AttemptNumber:   order.AttemptNumber,
		PreviousOrderID: order.PreviousOrderID,
		City:            order.City,
		Street:          order.Street,
		PostalCode:      order.PostalCode,
		Latitude:        order.Latitude,
		Longitude:       order.Longitude,
		CompletedAt:     formatTime(order.CompletedAt),
		CreatedAt:       order.CreatedAt.Format(timestampLayout),
		UpdatedAt:       order.UpdatedAt.Format(timestampLayout),
	}
}

// ToOrderDTOs converts a slice of orders
func ToOrderDTOs(orders []domain.Order) []domain.OrderDTO {
	dtos := make([]domain.OrderDTO, len(orders))
	for i := range orders {
		dtos[i] = ToOrderDTO(&orders[i])
	}
	return dtos
}

// ToOrderDetailsDTO converts an order and its completion rows
func ToOrderDetailsDTO(order *domain.Order, codes []domain.OrderWorkCode, settlements []domain.OrderSettlement, devices []domain.StockItem) domain.OrderDetailsDTO {
	dto := domain.OrderDetailsDTO{
		OrderDTO:    ToOrderDTO(order),
		WorkCodes:   make([]domain.WorkCodeDTO, 0, len(codes)),
		Settlements: make([]domain.SettlementDTO, 0, len(settlements)),
		Devices:     ToStockItemDTOs(devices),
	}
	for _, c := range codes {
		dto.WorkCodes = append(dto.WorkCodes, domain.WorkCodeDTO{Code: c.Code, Quantity: c.Quantity})
	}
	for _, s := range settlements {
		dto.Settlements = append(dto.Settlements, domain.SettlementDTO{RateCode: s.RateCode, Quantity: s.Quantity, Amount: s.Amount})
		dto.Total += s.Amount
	}
	return dto
}

// ToStockItemDTO converts StockItem to StockItemDTO
func ToStockItemDTO(item *domain.StockItem) domain.StockItemDTO {
	return domain.StockItemDTO{
		ID:              item.ID,
		ItemType:        item.ItemType,
		Category:        item.Category,
		Name:            item.Name,
		SerialNumber:    item.SerialNumber,
		Quantity:        item.Quantity,
		Price:           item.Price,
		AssignedToID:    item.AssignedToID,
		LocationID:      item.LocationID,
		OrderID:         item.OrderID,
		Status:          item.Status,
		TransferPending: item.TransferPending,
		TransferToID:    item.TransferToID,
		UpdatedAt:       item.UpdatedAt.Format(timestampLayout),
	}
}

// ToStockItemDTOs converts a slice of stock items
func ToStockItemDTOs(items []domain.StockItem) []domain.StockItemDTO {
	dtos := make([]domain.StockItemDTO, len(items))
	for i := range items {
		dtos[i] = ToStockItemDTO(&items[i])
	}
	return dtos
}

// ToStockHistoryDTO converts StockHistory to StockHistoryDTO
func ToStockHistoryDTO(h *domain.StockHistory) domain.StockHistoryDTO {
	return domain.StockHistoryDTO{
		ID:                   h.ID,
		WarehouseItemID:      h.WarehouseItemID,
		Action:               h.Action,
		Quantity:             h.Quantity,
		FromHolderID:         h.FromHolderID,
		ToHolderID:           h.ToHolderID,
		OrderID:              h.OrderID,
		PerformedByID:        h.PerformedByID,
		ReturnedToOperatorAt: formatTime(h.ReturnedToOperatorAt),
		Notes:                h.Notes,
		ActionDate:           h.ActionDate.Format(timestampLayout),
	}
}

// ToStockHistoryDTOs converts a slice of history entries
func ToStockHistoryDTOs(entries []domain.StockHistory) []domain.StockHistoryDTO {
	dtos := make([]domain.StockHistoryDTO, len(entries))
	for i := range entries {
		dtos[i] = ToStockHistoryDTO(&entries[i])
	}
	return dtos
}

// ToAuditLogDTOs converts audit log entries
func ToAuditLogDTOs(logs []domain.AuditLog) []domain.AuditLogDTO {
	dtos := make([]domain.AuditLogDTO, len(logs))
	for i, l := range logs {
		dtos[i] = domain.AuditLogDTO{
			ID:          l.ID,
			UserID:      l.UserID,
			UserEmail:   l.UserEmail,
			UserName:    l.UserName,
			Action:      l.Action,
			ModuleCode:  l.ModuleCode,
			EntityType:  l.EntityType,
			EntityID:    l.EntityID,
			NewValues:   l.NewValues,
			IPAddress:   l.IPAddress,
			RequestID:   l.RequestID,
			PerformedAt: l.PerformedAt.UTC().Format(timestampLayout),
		}
	}
	return dtos
}

// ToModuleDTOs lists every known module; modules with order tables carry their descriptor data
func ToModuleDTOs() []domain.ModuleDTO {
	dtos := make([]domain.ModuleDTO, 0, len(domain.ModuleNames))
	for code, name := range domain.ModuleNames {
		dto := domain.ModuleDTO{Code: code, Name: name}
		if m, err := domain.LookupModule(code); err == nil {
			dto.OrderTypes = m.OrderTypes
			dto.BillableTypes = m.BillableTypes
			dto.FailureReasons = m.FailureReasons
		}
		dtos = append(dtos, dto)
	}
	sort.Slice(dtos, func(i, j int) bool { return dtos[i].Code < dtos[j].Code })
	return dtos
}

func ToCatalogDTO(rates []domain.RateDefinition, materials []domain.MaterialDefinition) domain.CatalogDTO {
	dto := domain.CatalogDTO{
		Rates:     make([]domain.RateDefinitionDTO, len(rates)),
		Materials: make([]domain.MaterialDefinitionDTO, len(materials)),
	}
	for i, r := range rates {
		dto.Rates[i] = domain.RateDefinitionDTO{Code: r.Code, Description: r.Description, Amount: r.Amount}
	}
	for i, m := range materials {
		dto.Materials[i] = domain.MaterialDefinitionDTO{ID: m.ID, Name: m.Name, Index: m.Index, Unit: m.Unit, Price: m.Price}
	}
	return dto
}
