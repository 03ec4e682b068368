package scheduling

import (
	"context"
	"fmt"

	"github.com/ehr/booking/internal/platform/db"
)

// TxReserver books a slot inside one Postgres transaction: the booked flag
// compare-and-set and the visit insert commit together, so a booked slot
// always has its visit.
type TxReserver struct {
	db db.TxBeginner
}

func NewTxReserver(conn db.TxBeginner) *TxReserver {
	return &TxReserver{db: conn}
}

func (r *TxReserver) Reserve(ctx context.Context, v *Visit) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin booking: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if err = NewSlotRepoPG(tx).SetBooked(ctx, v.SlotID, false, true); err != nil {
		return err
	}
	if err = NewVisitRepoPG(tx).Create(ctx, v); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit booking: %w", err)
	}
	return nil
}
