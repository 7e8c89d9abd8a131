package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/storycraft/billing/internal/domain/enums"
	activationsvc "github.com/storycraft/billing/internal/services/activation"
)

func confirmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "confirm <orderId>",
		Short: "Re-run activation for one paid order",
		Long: `Resumes a single activation. Pending orders are not touched: this
command never marks an order paid, it only finishes orders that already are.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, cleanup, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			order, err := e.components.Orders.FindByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if order.Status != enums.OrderStatusPaid {
				return fmt.Errorf("order %s is %s, only paid orders can be resumed", order.ID, order.Status)
			}

			res, err := e.components.ActivationService.Confirm(cmd.Context(), activationsvc.ConfirmedPayment{
				OrderID: order.ID,
				UserID:  order.UserID,
				Method:  order.PaymentMethod,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "order=%s status=%s replayed=%t\n", res.OrderID, res.Status, res.Replayed)
			return nil
		},
	}
}
